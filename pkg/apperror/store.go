package apperror

import (
	"context"
	"errors"
	"fmt"

	"anoa.com/drawsocial/pkg/docstore"
)

// FromStore maps document store failures onto the app taxonomy. Conflicts
// only reach here after the store has exhausted its own retries.
func FromStore(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, docstore.ErrTxConflict):
		return fmt.Errorf("%w: %v", ErrTransactionConflict, err)
	case errors.Is(err, docstore.ErrNotFound):
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	case errors.Is(err, docstore.ErrMalformed):
		return fmt.Errorf("%w: %v", ErrInternal, err)
	}
	return fmt.Errorf("%w: %v", ErrNetwork, err)
}
