package support

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awssupport "github.com/aws/aws-sdk-go-v2/service/support"
	"github.com/justeat/JustSupport/internal/config"
)

// ErrReplyRejected is returned when AWS accepts the call but reports the
// communication was not added.
var ErrReplyRejected = errors.New("support: communication not added to case")

// Replier posts communications to a case in the owning account.
type Replier struct {
	clients ClientFactory
}

func NewReplier(clients ClientFactory) *Replier {
	return &Replier{clients: clients}
}

// Reply adds body to caseID using account's credentials.
func (r *Replier) Reply(ctx context.Context, account config.Account, caseID, body string) error {
	api, err := r.clients.ForAccount(ctx, account)
	if err != nil {
		return fmt.Errorf("support client for %s: %w", account.Name, err)
	}

	out, err := api.AddCommunicationToCase(ctx, &awssupport.AddCommunicationToCaseInput{
		CaseId:            aws.String(caseID),
		CommunicationBody: aws.String(body),
	})
	if err != nil {
		return fmt.Errorf("adding communication to %s: %w", caseID, err)
	}
	if !out.Result {
		return fmt.Errorf("%w: %s", ErrReplyRejected, caseID)
	}
	return nil
}
