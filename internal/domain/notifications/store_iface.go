package notifications

import "context"

type StoreAPI interface {
	ActiveSupervisorEmails(ctx context.Context) ([]string, error)
}
