package service_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	mintqueue "github.com/forgemint/forgemint/internal/adapters/mq/queue"
	"github.com/forgemint/forgemint/internal/adapters/repository"
	service "github.com/forgemint/forgemint/internal/app"
	"github.com/forgemint/forgemint/internal/attest"
	"github.com/forgemint/forgemint/internal/domain/model"
	"github.com/forgemint/forgemint/internal/domain/scoring"
	"github.com/forgemint/forgemint/internal/domain/webhook"
	"github.com/forgemint/forgemint/pkg/logger"
)

const (
	testSecret = "intake-secret"
	testKeyHex = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"
)

var testDomain = attest.Domain{
	Name:              "ForgeMint",
	Version:           "1",
	ChainID:           31337,
	VerifyingContract: "0x5fbdb2315678afecb367f032d93f642f64180aa3",
}

func init() {
	// Initialize logging for tests
	if err := logger.Init(); err != nil {
		panic(err)
	}
}

func newTestService(t *testing.T) (*service.Service, *repository.MemStore, *webhook.Verifier) {
	t.Helper()

	store := repository.NewMemStore()
	users := repository.NewMemUserDirectory(model.User{
		ID:            "user-1",
		Username:      "octocat",
		WalletAddress: "0x70997970c51812dc3a010c7d01b50e0d17dc79c8",
	})
	verifier := webhook.NewVerifier(testSecret)

	signer, err := attest.NewSigner(testKeyHex, testDomain)
	if err != nil {
		t.Fatalf("new signer: %v", err)
	}

	// Closed queue: intake logs a deferred-enqueue warning and the async
	// mint path stays idle, keeping these tests deterministic.
	q := mintqueue.NewInMemoryQueue(mintqueue.WithCapacity(4))
	_ = q.Close()

	svc := service.New(
		service.WithStore(store),
		service.WithUserDirectory(users),
		service.WithVerifier(verifier),
		service.WithSigner(signer),
		service.WithQueue(q),
		service.WithWorkerCount(1),
	)
	return svc, store, verifier
}

func pushPayload(t *testing.T, username, sha string) []byte {
	t.Helper()

	body, err := json.Marshal(map[string]any{
		"repository": map[string]any{
			"id":        "repo-1",
			"name":      "forge",
			"full_name": "octo/forge",
		},
		"commits": []map[string]any{{
			"id":        sha,
			"message":   "feat: add streaming parser\n\nCloses #42",
			"url":       "https://example.test/commit/" + sha,
			"author":    map[string]any{"name": "Octo Cat", "username": username},
			"added":     []string{"parser/stream.go", "parser/stream_test.go"},
			"modified":  []string{},
			"removed":   []string{},
			"additions": 30,
			"deletions": 5,
		}},
	})
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	return body
}

func TestService_HandleWebhook(t *testing.T) {
	Convey("Given a started service", t, func() {
		svc, store, verifier := newTestService(t)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx)

		Convey("When a signed push delivery arrives", func() {
			body := pushPayload(t, "octocat", "abc123")
			So(svc.VerifyWebhook(body, verifier.Sign(body)), ShouldBeNil)

			res, err := svc.HandleWebhook(ctx, "push", body)

			Convey("Then exactly one contribution is created", func() {
				So(err, ShouldBeNil)
				So(res.Received, ShouldEqual, 1)
				So(res.Created, ShouldEqual, 1)
				So(store.Count(ctx), ShouldEqual, 1)
			})

			Convey("And a replayed delivery changes nothing", func() {
				replay, err := svc.HandleWebhook(ctx, "push", body)
				So(err, ShouldBeNil)
				So(replay.Created, ShouldEqual, 0)
				So(replay.Duplicates, ShouldEqual, 1)
				So(store.Count(ctx), ShouldEqual, 1)
			})
		})

		Convey("When the commit author is unmapped", func() {
			res, err := svc.HandleWebhook(ctx, "push", pushPayload(t, "stranger", "def456"))

			Convey("Then the commit is skipped silently", func() {
				So(err, ShouldBeNil)
				So(res.Created, ShouldEqual, 0)
				So(res.Skipped, ShouldEqual, 1)
				So(store.Count(ctx), ShouldEqual, 0)
			})
		})

		Convey("When the event kind is unknown", func() {
			res, err := svc.HandleWebhook(ctx, "star", []byte(`{}`))

			Convey("Then the delivery is ignored without error", func() {
				So(err, ShouldBeNil)
				So(res.Received, ShouldEqual, 0)
			})
		})

		Convey("When a tampered signature is presented", func() {
			body := pushPayload(t, "octocat", "abc123")

			Convey("Then verification fails", func() {
				err := svc.VerifyWebhook(body, "sha256=deadbeef")
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestService_RunScoring(t *testing.T) {
	Convey("Given a service with one ingested contribution", t, func() {
		svc, store, _ := newTestService(t)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx)

		res, err := svc.HandleWebhook(ctx, "push", pushPayload(t, "octocat", "abc123"))
		So(err, ShouldBeNil)
		So(res.Created, ShouldEqual, 1)
		id := res.IDs[0]

		Convey("When the scoring batch runs", func() {
			batch, err := svc.RunScoring(ctx, 10)

			Convey("Then the contribution is scored exactly once", func() {
				So(err, ShouldBeNil)
				So(batch.Count, ShouldEqual, 1)
				So(batch.Results[0].ID, ShouldEqual, id)
				So(batch.Results[0].Score, ShouldBeGreaterThanOrEqualTo, 80)

				c, err := store.Get(ctx, id)
				So(err, ShouldBeNil)
				So(c.Scored(), ShouldBeTrue)
				So(c.Eligibility, ShouldEqual, model.EligibilityEligible)
			})
		})

		Convey("When scoring runs on an empty backlog", func() {
			_, err := svc.RunScoring(ctx, 10)
			So(err, ShouldBeNil)

			batch, err := svc.RunScoring(ctx, 10)

			Convey("Then the batch is empty", func() {
				So(err, ShouldBeNil)
				So(batch.Count, ShouldEqual, 0)
			})
		})
	})
}

func TestService_BuildAttestation(t *testing.T) {
	Convey("Given a scored contribution", t, func() {
		svc, store, _ := newTestService(t)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx)

		res, err := svc.HandleWebhook(ctx, "push", pushPayload(t, "octocat", "abc123"))
		So(err, ShouldBeNil)
		id := res.IDs[0]

		_, err = svc.ScoreContribution(ctx, id)
		So(err, ShouldBeNil)

		Convey("When building the attestation bundle", func() {
			bundle, err := svc.BuildAttestation(ctx, id)

			Convey("Then the bundle is complete and self-verifying", func() {
				So(err, ShouldBeNil)
				So(bundle.Signature, ShouldStartWith, "0x")
				So(len(bundle.Signature), ShouldEqual, 2+65*2)
				So(bundle.Evaluator, ShouldStartWith, "0x")
				So(bundle.MetadataURI, ShouldNotBeEmpty)
				So(bundle.ShouldMint, ShouldBeTrue)
				So(bundle.Feedback.Repo, ShouldEqual, "octo/forge")
				So(bundle.Feedback.CommitSHA, ShouldEqual, "abc123")
			})

			Convey("And rebuilding yields the identical feedback and signature", func() {
				again, err := svc.BuildAttestation(ctx, id)
				So(err, ShouldBeNil)
				So(again.Feedback, ShouldResemble, bundle.Feedback)
				So(again.Signature, ShouldEqual, bundle.Signature)
			})
		})

		Convey("When the contribution is unscored", func() {
			other, _, err := store.CreateIfAbsent(ctx, "octo/forge:zzz", repository.CreateAttrs{
				Type:   model.TypeCommit,
				UserID: "user-1",
			})
			So(err, ShouldBeNil)

			_, err = svc.BuildAttestation(ctx, other.ID)

			Convey("Then the bundle is refused", func() {
				So(err, ShouldNotBeNil)
			})
		})
	})
}

func TestService_Submit(t *testing.T) {
	Convey("Given a scored, eligible contribution", t, func() {
		svc, _, _ := newTestService(t)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop(ctx)

		res, err := svc.HandleWebhook(ctx, "push", pushPayload(t, "octocat", "abc123"))
		So(err, ShouldBeNil)
		id := res.IDs[0]

		_, err = svc.ScoreContribution(ctx, id)
		So(err, ShouldBeNil)

		Convey("When submitting it on-chain", func() {
			result, err := svc.Submit(ctx, id)

			Convey("Then the contribution ends up minted with linkage", func() {
				So(err, ShouldBeNil)
				So(result.Status, ShouldEqual, model.StatusMinted)
				So(result.TxHash, ShouldNotBeEmpty)
				So(result.TokenID, ShouldNotBeEmpty)

				c, err := svc.Get(ctx, id)
				So(err, ShouldBeNil)
				So(c.Status, ShouldEqual, model.StatusMinted)
			})

			Convey("And a second submission is a no-op with the same result", func() {
				So(err, ShouldBeNil)
				again, err := svc.Submit(ctx, id)
				So(err, ShouldBeNil)
				So(again.TxHash, ShouldEqual, result.TxHash)
			})
		})
	})
}

func TestService_SnapshotBeforeStart(t *testing.T) {
	Convey("Given a constructed but unstarted service", t, func() {
		svc, _, _ := newTestService(t)

		Convey("When taking a stats snapshot", func() {
			var stats service.Stats
			So(func() { stats = svc.Snapshot(context.Background()) }, ShouldNotPanic)

			Convey("Then every counter should be zero", func() {
				So(stats, ShouldResemble, service.Stats{})
			})
		})
	})
}

func TestService_ScoringReenqueuesEligible(t *testing.T) {
	Convey("Given a pending contribution whose intake-time enqueue was dropped", t, func() {
		ctx := context.Background()
		store := repository.NewMemStore()
		c, _, err := store.CreateIfAbsent(ctx, "octo/forge:abc999", repository.CreateAttrs{
			Type:   model.TypeCommit,
			UserID: "user-1",
			RepoID: "repo-1",
			Title:  "feat: add streaming parser",
			Stats: model.CommitStats{
				Additions: 30, Deletions: 5, Merged: true,
				Files: []model.FileStat{{Path: "parser/stream_test.go", Changes: 20}},
			},
			Metadata: map[string]string{"commit_sha": "abc999"},
		})
		So(err, ShouldBeNil)

		q := mintqueue.NewInMemoryQueue(mintqueue.WithCapacity(4))
		svc := service.New(
			service.WithStore(store),
			service.WithQueue(q),
			service.WithEngine(scoring.NewEngine()),
			service.WithLogger(logger.Get()),
		)

		Convey("When the scoring batch runs", func() {
			batch, err := svc.RunScoring(ctx, 10)
			So(err, ShouldBeNil)
			So(batch.Count, ShouldEqual, 1)

			Convey("Then the eligible item is handed back to the mint queue", func() {
				So(q.Len(ctx), ShouldEqual, 1)
				task := <-q.Dequeue(ctx)
				So(task.ContributionID, ShouldEqual, c.ID)
			})
		})
	})
}
