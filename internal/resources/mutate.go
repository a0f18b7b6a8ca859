package resources

import (
	"context"
	"errors"

	"github.com/rs/zerolog/hlog"

	"github.com/ff-monheim/ams-console/internal/audit"
	"github.com/ff-monheim/ams-console/internal/auth"
	"github.com/ff-monheim/ams-console/internal/policy"
	"github.com/ff-monheim/ams-console/internal/session"
	"github.com/ff-monheim/ams-console/pkg/client"
)

const (
	resultSuccess = "success"
	resultError   = "error"
	resultDenied  = "denied"
)

// mutate runs one create, update or delete through the mode guard and
// records its outcome in the audit log and metrics. call returns the id of
// the affected record.
func (r *resource[D, R]) mutate(ctx context.Context, action, id string, call func(context.Context) (string, error)) error {
	start := r.deps.Now()

	var err error
	if err = r.deps.Guard.AuthorizeMutation(r.meta.Name, action); err == nil {
		var recordID string
		recordID, err = call(ctx)
		if recordID != "" {
			id = recordID
		}
	}

	result := resultSuccess
	switch {
	case errors.Is(err, policy.ErrReadOnly):
		result = resultDenied
	case err != nil:
		result = resultError
	}

	event := audit.MutationCompletion{
		RequestID: requestID(ctx),
		Resource:  r.meta.Name,
		Action:    action,
		RecordID:  id,
		Result:    result,
		Duration:  r.deps.Now().Sub(start),
	}
	if sess := session.FromContext(ctx); sess != nil {
		event.SessionID = sess.ID()
	}
	if user, ok := auth.UserFromContext(ctx); ok {
		event.UserID = user.ID
	}
	if err != nil {
		event.ErrorDetail = err.Error()
		var apiErr *client.APIError
		if errors.As(err, &apiErr) {
			event.StatusCode = apiErr.StatusCode
		}
	}

	r.deps.Audit.Complete(event)
	if r.deps.Metrics != nil {
		r.deps.Metrics.Mutation(r.meta.Name, action, result)
	}
	return err
}

// requestID returns the id the access log assigned to the request, if any.
func requestID(ctx context.Context) string {
	if id, ok := hlog.IDFromCtx(ctx); ok {
		return id.String()
	}
	return ""
}
