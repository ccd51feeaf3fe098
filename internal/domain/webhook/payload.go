package webhook

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Event kinds recognized by the intake pipeline.
const (
	KindPush        = "push"
	KindPullRequest = "pull_request"
)

// Event is the tagged union of parsed webhook payloads. Exactly one of the
// typed accessors returns a value depending on Kind.
type Event struct {
	Kind        string
	Push        *PushEvent
	PullRequest *PullRequestEvent
}

// ID is a source-system identifier. GitHub-shaped payloads carry repository
// and pull request ids as JSON numbers while other forges quote them, so
// both wire shapes decode into the same string form.
type ID string

func (i *ID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*i = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*i = ID(n.String())
	return nil
}

func (i ID) String() string { return string(i) }

// RepoRef identifies the repository a delivery belongs to.
type RepoRef struct {
	ExternalID ID     `json:"id"`
	Name       string `json:"name"`
	FullName   string `json:"full_name"`
	Private    bool   `json:"private"`
}

// Commit is one commit within a push delivery.
type Commit struct {
	SHA       string       `json:"id"`
	Message   string       `json:"message"`
	URL       string       `json:"url"`
	Author    CommitAuthor `json:"author"`
	Added     []string     `json:"added"`
	Removed   []string     `json:"removed"`
	Modified  []string     `json:"modified"`
	Additions int          `json:"additions"`
	Deletions int          `json:"deletions"`
}

// CommitAuthor carries the source-system identity of a commit author.
type CommitAuthor struct {
	Name     string `json:"name"`
	Username string `json:"username"`
}

// PushEvent is the typed form of a push delivery.
type PushEvent struct {
	Repo    RepoRef  `json:"repository"`
	Commits []Commit `json:"commits"`
}

// PullRequest is the inner object of a pull_request delivery.
type PullRequest struct {
	ExternalID ID     `json:"id"`
	Number     int    `json:"number"`
	Title      string `json:"title"`
	Body       string `json:"body"`
	URL        string `json:"html_url"`
	Merged     bool   `json:"merged"`
	MergeSHA   string `json:"merge_commit_sha"`
	Additions  int    `json:"additions"`
	Deletions  int    `json:"deletions"`
	User       struct {
		Login string `json:"login"`
	} `json:"user"`
}

// PullRequestEvent is the typed form of a pull_request delivery.
type PullRequestEvent struct {
	Action string      `json:"action"`
	PR     PullRequest `json:"pull_request"`
	Repo   RepoRef     `json:"repository"`
}

// Merged reports whether the event is a merge of a closed pull request,
// the only pull_request action the pipeline ingests.
func (e *PullRequestEvent) MergedClose() bool {
	return e.Action == "closed" && e.PR.Merged
}

// ParseEvent converts a raw, already-verified delivery into its typed
// variant. Unknown kinds return ErrUnknownEvent so intake can ignore them
// without treating the delivery as malformed.
func ParseEvent(kind string, body []byte) (Event, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case KindPush:
		var push PushEvent
		if err := json.Unmarshal(body, &push); err != nil {
			return Event{}, fmt.Errorf("parse push payload: %w", ErrMalformedPayload)
		}
		if push.Repo.ExternalID == "" {
			return Event{}, fmt.Errorf("push payload missing repository id: %w", ErrMalformedPayload)
		}
		return Event{Kind: KindPush, Push: &push}, nil

	case KindPullRequest:
		var pr PullRequestEvent
		if err := json.Unmarshal(body, &pr); err != nil {
			return Event{}, fmt.Errorf("parse pull_request payload: %w", ErrMalformedPayload)
		}
		if pr.Repo.ExternalID == "" || pr.PR.ExternalID == "" {
			return Event{}, fmt.Errorf("pull_request payload missing ids: %w", ErrMalformedPayload)
		}
		return Event{Kind: KindPullRequest, PullRequest: &pr}, nil

	default:
		return Event{}, fmt.Errorf("event kind %q: %w", kind, ErrUnknownEvent)
	}
}
