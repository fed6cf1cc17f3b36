package health

import (
	"errors"
	"fmt"
	"testing"
	"time"
	"workshop_server/lib"
	"workshop_server/services"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommitOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "saved"},
		{fmt.Errorf("images changed: %w", lib.ErrConflict), "conflict"},
		{&services.PersistFailedError{Err: lib.ErrConflict}, "conflict"},
		{&services.UploadFailedError{Failures: []services.FileFailure{{FileName: "a.png"}}}, "upload_failed"},
		{&services.PersistFailedError{Uploaded: []string{"images/a.png"}, Err: errors.New("db down")}, "persist_failed"},
		{services.ErrSessionExpired, "no_session"},
		{errors.New("boom"), "error"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, CommitOutcome(tt.err), "%v", tt.err)
	}
}

func TestObserveCommitCountsByOutcome(t *testing.T) {
	before := commitCount(t, "persist_failed")

	ObserveCommit(&services.PersistFailedError{Err: errors.New("db down")}, 40*time.Millisecond)

	assert.Equal(t, before+1, commitCount(t, "persist_failed"))
}

func commitCount(t *testing.T, outcome string) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, ImageCommits.WithLabelValues(outcome).Write(&m))
	return m.GetCounter().GetValue()
}
