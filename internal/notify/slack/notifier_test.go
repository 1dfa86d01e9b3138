package slack_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	slacklib "github.com/slack-go/slack"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosuda/corral/internal/domain"
	"github.com/gosuda/corral/internal/notify/slack"
)

// fakeAPI records posted messages and hands out increasing timestamps.
type fakeAPI struct {
	posts []fakePost
	next  int
	fail  bool
}

type fakePost struct {
	channel string
	opts    int
}

func (f *fakeAPI) PostMessage(channelID string, options ...slacklib.MsgOption) (string, string, error) {
	if f.fail {
		return "", "", errors.New("slack unavailable")
	}

	f.next++
	f.posts = append(f.posts, fakePost{channel: channelID, opts: len(options)})
	return channelID, fmt.Sprintf("171701%d.000", f.next), nil
}

func request(status domain.ApprovalStatus) *domain.ApprovalRequest {
	now := time.Now()
	return &domain.ApprovalRequest{
		ID:        uuid.New(),
		ProcessID: uuid.New(),
		ToolName:  "Bash",
		Status:    status,
		CreatedAt: now,
		TimeoutAt: now.Add(time.Hour),
	}
}

func TestSlackNotifier_PostsToConfiguredChannel(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	notifier := slack.New(api, "C012345")

	require.NoError(t, notifier.ApprovalRequested(context.Background(), request(domain.ApprovalStatusPending)))

	require.Len(t, api.posts, 1)
	assert.Equal(t, "C012345", api.posts[0].channel)
}

func TestSlackNotifier_OutcomeThreadsUnderRequest(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	notifier := slack.New(api, "C012345")

	req := request(domain.ApprovalStatusPending)
	require.NoError(t, notifier.ApprovalRequested(context.Background(), req))

	req.Status = domain.ApprovalStatusApproved
	require.NoError(t, notifier.ApprovalResolved(context.Background(), req))

	require.Len(t, api.posts, 2)
	// The outcome carries an extra option: the thread timestamp.
	assert.Equal(t, 1, api.posts[0].opts)
	assert.Equal(t, 2, api.posts[1].opts)
}

func TestSlackNotifier_OutcomeWithoutPriorRequest(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{}
	notifier := slack.New(api, "C012345")

	// Resolution with no recorded request posts unthreaded rather than
	// failing; the sweeper can resolve requests announced elsewhere.
	req := request(domain.ApprovalStatusTimedOut)
	require.NoError(t, notifier.ApprovalResolved(context.Background(), req))

	require.Len(t, api.posts, 1)
	assert.Equal(t, 1, api.posts[0].opts)
}

func TestSlackNotifier_APIFailureSurfaces(t *testing.T) {
	t.Parallel()

	api := &fakeAPI{fail: true}
	notifier := slack.New(api, "C012345")

	err := notifier.ApprovalRequested(context.Background(), request(domain.ApprovalStatusPending))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "slack unavailable")
}
