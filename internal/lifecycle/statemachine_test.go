package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cupOJoseph/meatboard/internal/models"
	"github.com/cupOJoseph/meatboard/pkg/errors"
)

func TestNext(t *testing.T) {
	tests := []struct {
		name    string
		current models.BountyStatus
		trigger Trigger
		want    models.BountyStatus
		wantErr bool
	}{
		{name: "claim open", current: models.StatusOpen, trigger: TriggerClaim, want: models.StatusClaimed},
		{name: "submit claimed", current: models.StatusClaimed, trigger: TriggerSubmit, want: models.StatusSubmitted},
		{name: "approve submitted", current: models.StatusSubmitted, trigger: TriggerApprove, want: models.StatusPaid},
		{name: "reject reopens", current: models.StatusSubmitted, trigger: TriggerReject, want: models.StatusOpen},
		{name: "cancel open", current: models.StatusOpen, trigger: TriggerCancel, want: models.StatusCancelled},
		{name: "dispute submitted", current: models.StatusSubmitted, trigger: TriggerDispute, want: models.StatusDisputed},
		{name: "resolve paid", current: models.StatusDisputed, trigger: TriggerResolvePaid, want: models.StatusPaid},
		{name: "resolve refunded", current: models.StatusDisputed, trigger: TriggerResolveRefunded, want: models.StatusCancelled},
		{name: "expire open", current: models.StatusOpen, trigger: TriggerExpire, want: models.StatusExpired},
		{name: "expire claimed", current: models.StatusClaimed, trigger: TriggerExpire, want: models.StatusExpired},
		{name: "expire submitted", current: models.StatusSubmitted, trigger: TriggerExpire, want: models.StatusExpired},

		{name: "claim claimed fails", current: models.StatusClaimed, trigger: TriggerClaim, wantErr: true},
		{name: "claim paid fails", current: models.StatusPaid, trigger: TriggerClaim, wantErr: true},
		{name: "submit open fails", current: models.StatusOpen, trigger: TriggerSubmit, wantErr: true},
		{name: "approve open fails", current: models.StatusOpen, trigger: TriggerApprove, wantErr: true},
		{name: "cancel claimed fails", current: models.StatusClaimed, trigger: TriggerCancel, wantErr: true},
		{name: "cancel submitted fails", current: models.StatusSubmitted, trigger: TriggerCancel, wantErr: true},
		{name: "dispute open fails", current: models.StatusOpen, trigger: TriggerDispute, wantErr: true},
		{name: "expire paid fails", current: models.StatusPaid, trigger: TriggerExpire, wantErr: true},
		{name: "expire cancelled fails", current: models.StatusCancelled, trigger: TriggerExpire, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Next(tt.current, tt.trigger)
			if tt.wantErr {
				require.Error(t, err)
				var appErr *errors.AppError
				require.ErrorAs(t, err, &appErr)
				assert.Equal(t, errors.CodeInvalidStatus, appErr.Code)
				// 错误信息要带当前状态，调用方直接透传给API
				assert.Contains(t, appErr.Message, string(tt.current))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNextUnknownTrigger(t *testing.T) {
	_, err := Next(models.StatusOpen, Trigger("teleport"))
	require.Error(t, err)
}

func TestTerminalStatesHaveNoExits(t *testing.T) {
	terminals := []models.BountyStatus{models.StatusPaid, models.StatusCancelled, models.StatusExpired}
	triggers := []Trigger{
		TriggerClaim, TriggerSubmit, TriggerApprove, TriggerReject,
		TriggerCancel, TriggerDispute, TriggerResolvePaid, TriggerResolveRefunded, TriggerExpire,
	}

	for _, status := range terminals {
		require.True(t, status.IsTerminal())
		for _, trigger := range triggers {
			assert.False(t, Can(status, trigger), "%s should not allow %s", status, trigger)
		}
	}
}
