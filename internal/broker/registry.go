package broker

import (
	"fmt"

	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/apperrors"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/model"
	"github.com/jvandijk/Holdings-Reconciliation-Backend/internal/reconcile"
)

// Registry maps broker identifiers to the client that serves them. OAuth
// brokers (Plaid, Schwab and friends) go through the REST client; manual and
// CSV connections are served from records already staged in the database.
type Registry struct {
	rest   reconcile.BrokerClient
	stored reconcile.BrokerClient
}

// NewRegistry creates a Registry over the two client implementations.
func NewRegistry(rest, stored reconcile.BrokerClient) *Registry {
	return &Registry{rest: rest, stored: stored}
}

// ClientFor returns the broker client serving the given broker.
func (r *Registry) ClientFor(broker model.Broker) (reconcile.BrokerClient, error) {
	switch broker {
	case model.BrokerManual, model.BrokerCSV:
		return r.stored, nil
	case model.BrokerPlaid, model.BrokerSchwab, model.BrokerInteractiveBrokers, model.BrokerNordnet:
		return r.rest, nil
	default:
		return nil, fmt.Errorf("%w: %q", apperrors.ErrInvalidBroker, broker)
	}
}
