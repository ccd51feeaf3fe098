package repository

import (
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/forgemint/forgemint/internal/domain/model"
	"github.com/forgemint/forgemint/internal/domain/scoring"
)

// fakeRow satisfies rowScanner without a database, assigning its values to
// the scan destinations in column order. A nil value leaves the destination
// at its zero value, matching a SQL NULL.
type fakeRow struct {
	values []any
	err    error
}

func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	for i, d := range dest {
		if i >= len(r.values) || r.values[i] == nil {
			continue
		}
		target := reflect.ValueOf(d).Elem()
		target.Set(reflect.ValueOf(r.values[i]).Convert(target.Type()))
	}
	return nil
}

func TestTransitionQuery(t *testing.T) {
	Convey("Given a bare status transition", t, func() {
		query, args, err := transitionQuery("c-1",
			[]model.Status{model.StatusPending, model.StatusFailed},
			model.StatusMinting, Patch{})

		Convey("Then the guard names the prior statuses and excludes minted", func() {
			So(err, ShouldBeNil)
			So(query, ShouldContainSubstring, "SET status = $2, updated_at = now()")
			So(query, ShouldContainSubstring, "WHERE id = $1 AND status = ANY($3) AND status <> 'minted'")
			So(query, ShouldContainSubstring, "RETURNING")
			So(args, ShouldResemble, []any{"c-1", "minting", []string{"pending", "failed"}})
		})
	})

	Convey("Given a receipt-carrying patch", t, func() {
		tx := "0xabc"
		token := "7"
		uri := "ipfs://cid"
		phase := "phase_validation"
		query, args, err := transitionQuery("c-1",
			[]model.Status{model.StatusPending}, model.StatusPending,
			Patch{TxHash: &tx, TokenID: &token, MetadataURI: &uri, SubmissionPhase: &phase})

		Convey("Then every patched column gets its own placeholder", func() {
			So(err, ShouldBeNil)
			So(query, ShouldContainSubstring, "tx_hash = $3")
			So(query, ShouldContainSubstring, "token_id = $4")
			So(query, ShouldContainSubstring, "metadata_uri = $5")
			So(query, ShouldContainSubstring, "submission_phase = $6")
			So(query, ShouldContainSubstring, "status = ANY($7)")
			So(args[2:6], ShouldResemble, []any{"0xabc", "7", "ipfs://cid", "phase_validation"})
		})
	})

	Convey("Given a scored patch", t, func() {
		score := 87
		eligibility := model.EligibilityEligible
		query, args, err := transitionQuery("c-1",
			[]model.Status{model.StatusPending}, model.StatusPending,
			Patch{Score: &score, Breakdown: &scoring.Breakdown{Size: 95}, Eligibility: &eligibility})

		Convey("Then score, breakdown, and eligibility are bound in order", func() {
			So(err, ShouldBeNil)
			So(query, ShouldContainSubstring, "score = $3")
			So(query, ShouldContainSubstring, "breakdown = $4")
			So(query, ShouldContainSubstring, "eligibility = $5")
			So(args[2], ShouldEqual, 87)
			So(string(args[3].([]byte)), ShouldContainSubstring, `"size":95`)
			So(args[4], ShouldEqual, "eligible")
		})
	})
}

func TestScanContribution(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)

	Convey("Given a row for a scored contribution", t, func() {
		score := 87
		row := fakeRow{values: []any{
			"c-1", "octo/forge:abc123", "commit", "user-1", "repo-1",
			"feat: add parser", "", "https://example.test/c/abc123",
			[]byte(`{"additions":30,"deletions":5,"merged":true}`),
			[]byte(`{"commit_sha":"abc123"}`),
			&score,
			[]byte(`{"convention":100,"size":95,"files_impact":75,"merge_signal":90,"metadata_completeness":70}`),
			"eligible", "pending", "", "", "", "",
			now, now,
		}}

		Convey("When scanning it", func() {
			c, err := scanContribution(row)

			Convey("Then every column round-trips into the model", func() {
				So(err, ShouldBeNil)
				So(c.ID, ShouldEqual, "c-1")
				So(c.ExternalID, ShouldEqual, "octo/forge:abc123")
				So(c.Type, ShouldEqual, model.TypeCommit)
				So(c.Stats.Additions, ShouldEqual, 30)
				So(c.Stats.Merged, ShouldBeTrue)
				So(c.Metadata["commit_sha"], ShouldEqual, "abc123")
				So(c.Score, ShouldNotBeNil)
				So(*c.Score, ShouldEqual, 87)
				So(c.Breakdown, ShouldNotBeNil)
				So(c.Breakdown.Size, ShouldEqual, 95)
				So(c.Eligibility, ShouldEqual, model.EligibilityEligible)
				So(c.Status, ShouldEqual, model.StatusPending)
				So(c.CreatedAt.Equal(now), ShouldBeTrue)
			})
		})
	})

	Convey("Given a row for an unscored contribution", t, func() {
		row := fakeRow{values: []any{
			"c-2", "octo/forge:def456", "commit", "user-1", "repo-1",
			"fix: guard", "", "",
			[]byte(`{}`), []byte(`{}`), nil, nil,
			"unscored", "pending", "", "", "", "",
			now, now,
		}}

		Convey("When scanning it", func() {
			c, err := scanContribution(row)

			Convey("Then score and breakdown stay nil", func() {
				So(err, ShouldBeNil)
				So(c.Score, ShouldBeNil)
				So(c.Breakdown, ShouldBeNil)
				So(c.Eligibility, ShouldEqual, model.EligibilityUnscored)
			})
		})
	})

	Convey("Given a row that reports no match", t, func() {
		_, err := scanContribution(fakeRow{err: pgx.ErrNoRows})

		Convey("Then the sentinel passes through for the callers to map", func() {
			So(errors.Is(err, pgx.ErrNoRows), ShouldBeTrue)
		})
	})

	Convey("Given a row with corrupt stats JSON", t, func() {
		row := fakeRow{values: []any{
			"c-3", "octo/forge:bad", "commit", "user-1", "repo-1",
			"", "", "",
			[]byte(`not json`), []byte(`{}`), nil, nil,
			"unscored", "pending", "", "", "", "",
			now, now,
		}}

		_, err := scanContribution(row)

		Convey("Then the scan fails rather than returning a partial row", func() {
			So(err, ShouldNotBeNil)
		})
	})
}
