package audit

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildEventPopulatesIdentityAndHash(t *testing.T) {
	orgID, actorID := uuid.New(), uuid.New()

	event := BuildEvent(orgID, actorID, ActorTypeUser, ActionLoginSuccess,
		map[string]any{"reason": "test"})

	assert.NotEqual(t, uuid.Nil, event.EventID)
	assert.Equal(t, orgID, event.OrgID)
	assert.Equal(t, actorID, event.ActorID)
	assert.Equal(t, ActionLoginSuccess, event.Action)
	assert.NotEmpty(t, event.Hash)
	assert.False(t, event.CreatedAt.IsZero())
}

func TestEventHashDetectsTampering(t *testing.T) {
	event := BuildEvent(uuid.New(), uuid.New(), ActorTypeUser, ActionRoleDenied, nil)
	original := event.Hash

	event.Action = ActionLoginSuccess
	recomputed := computeEventHash(event)
	assert.NotEqual(t, original, recomputed, "changing the payload changes the hash")
}

func TestWithRequestCapturesClientMetadata(t *testing.T) {
	req := httptest.NewRequest("POST", "/v1/projects/abc", nil)
	req.Header.Set("User-Agent", "caseflow-web/1.0")
	req.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")

	event := WithRequest(BuildEvent(uuid.Nil, uuid.Nil, ActorTypeAnonymous, ActionCSRFRejected, nil), req)

	assert.Equal(t, "203.0.113.7", event.IPAddress, "first forwarded hop wins")
	assert.Equal(t, "caseflow-web/1.0", event.UserAgent)
	assert.Equal(t, "POST /v1/projects/abc", event.Resource)
}

func TestClientIPFallsBackToSocket(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	req.RemoteAddr = "192.0.2.1:5000"
	assert.Equal(t, "192.0.2.1:5000", ClientIP(req))
}

func TestEmittersNeverFail(t *testing.T) {
	event := BuildEvent(uuid.New(), uuid.New(), ActorTypeServiceAccount, ActionRateLimited, nil)

	require.NoError(t, NewNoopEmitter().Emit(context.Background(), event))
}
