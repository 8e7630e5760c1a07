package hook

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/edgeoftrust/watchrelay/internal/client"
	"github.com/edgeoftrust/watchrelay/internal/model"
)

// recommendedMarker tags the option the agent recommends.
const recommendedMarker = "(Recommended)"

// ExtractRecommendation pulls the first question and its recommended answer
// out of an AskUserQuestion invocation. The watch takes binary decisions
// only, so the recommendation is the option labeled "(Recommended)", or the
// first option when none is labeled. ok is false when there is nothing to
// recommend; the terminal then shows the question itself.
func ExtractRecommendation(in *Input) (questionText, recommended string, ok bool) {
	if in.ToolName != "AskUserQuestion" || len(in.ToolInput.Questions) == 0 {
		return "", "", false
	}
	q := in.ToolInput.Questions[0]
	if q.Question == "" || len(q.Options) == 0 {
		return "", "", false
	}

	for _, opt := range q.Options {
		if strings.Contains(opt.Label, recommendedMarker) {
			recommended = strings.TrimSpace(strings.ReplaceAll(opt.Label, recommendedMarker, ""))
			break
		}
	}
	if recommended == "" {
		recommended = q.Options[0].Label
	}
	if recommended == "" {
		return "", "", false
	}
	return q.Question, recommended, true
}

// QuestionResult is the outcome of routing one question to the watch.
// Answered false means the terminal shows the question itself; there is no
// deny outcome for questions.
type QuestionResult struct {
	Answered bool
	Header   string
	Answer   string
}

// QuestionRunner routes one AskUserQuestion round-trip to the watch.
type QuestionRunner struct {
	client       *client.Client
	pairingID    string
	pollInterval time.Duration
	waitTimeout  time.Duration
}

// NewQuestionRunner creates a runner for the given relay client and pairing.
func NewQuestionRunner(c *client.Client, pairingID string) *QuestionRunner {
	return &QuestionRunner{
		client:       c,
		pairingID:    pairingID,
		pollInterval: defaultPollInterval,
		waitTimeout:  defaultWaitTimeout,
	}
}

// Run submits the question and blocks until the watch decides or the wait
// times out. Every failure path hands the question back to the terminal.
func (r *QuestionRunner) Run(ctx context.Context, in *Input) *QuestionResult {
	questionText, recommended, ok := ExtractRecommendation(in)
	if !ok {
		return &QuestionResult{}
	}

	active, err := r.client.SessionActive(ctx, r.pairingID)
	if err == nil && !active {
		return &QuestionResult{}
	}

	header := in.ToolInput.Questions[0].Header
	if header == "" {
		header = "question"
	}

	questionID, err := r.client.CreateQuestion(ctx, &client.QuestionSubmission{
		PairingID:         r.pairingID,
		ID:                uuid.NewString(),
		Question:          questionText,
		RecommendedAnswer: recommended,
	})
	if err != nil {
		return &QuestionResult{}
	}

	deadline := time.Now().Add(r.waitTimeout)
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for time.Now().Before(deadline) {
		st, err := r.client.PollQuestion(ctx, questionID, r.pairingID)
		if err != nil {
			var apiErr *client.APIError
			if errors.As(err, &apiErr) && apiErr.NotFound() {
				return &QuestionResult{}
			}
			// Transient failure; keep polling until the deadline.
		} else {
			switch model.QuestionStatus(st.Status) {
			case model.QuestionAccepted:
				answer := st.Answer
				if answer == "" {
					answer = recommended
				}
				return &QuestionResult{Answered: true, Header: header, Answer: answer}
			case model.QuestionHandleOnMac, model.QuestionSessionEnded:
				return &QuestionResult{}
			}
		}

		select {
		case <-ctx.Done():
			return &QuestionResult{}
		case <-ticker.C:
		}
	}

	return &QuestionResult{}
}

// AnswersOutput is the PreToolUse response carrying an accepted answer back
// to the agent.
func AnswersOutput(header, answer string) []byte {
	out := map[string]any{
		"hookSpecificOutput": map[string]any{
			"hookEventName": "PreToolUse",
			"answers":       map[string]string{header: answer},
		},
	}
	data, _ := json.Marshal(out)
	return data
}
