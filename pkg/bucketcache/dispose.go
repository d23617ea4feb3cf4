package bucketcache

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/calvinalkan/bucketcache/pkg/logger"
)

// Disposer is implemented by values that hold resources the cache must
// release when the value leaves it.
//
// Dispose is called exactly once per stored value, after the value is no
// longer reachable through the table.
type Disposer interface {
	Dispose() error
}

// dispose tears down v if it implements [Disposer] or [io.Closer]. Errors and
// panics are logged and counted, never propagated.
func (t *Table) dispose(v any) {
	if v == nil {
		return
	}

	err := callDispose(v)
	if err == nil {
		return
	}

	t.stats.disposeErrors.Add(1)
	t.logger.Warn("dispose failed",
		logger.Table(t.name),
		slog.String("value_type", fmt.Sprintf("%T", v)),
		logger.Error(err),
	)
}

func callDispose(v any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	switch d := v.(type) {
	case Disposer:
		return d.Dispose()
	case io.Closer:
		return d.Close()
	default:
		return nil
	}
}
