package tokens

import "context"

// RecordRepository is pure data access for token records. It enforces
// existence only; state rules belong to the controllers.
type RecordRepository interface {
	Get(ctx context.Context, id int64) (Record, error)
	Create(ctx context.Context, r Record) error
	Put(ctx context.Context, r Record) error
	List(ctx context.Context, filter Filter, limit, offset int) ([]Record, int64, error)
	// ListForSale returns every record listed for sale in ascending id order.
	ListForSale(ctx context.Context) ([]Record, error)
}
