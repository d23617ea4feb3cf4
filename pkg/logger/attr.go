package logger

import "log/slog"

// Error records err under "error". Nil errors produce an empty attr, which
// slog drops.
func Error(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}

	return slog.Any("error", err)
}

// Component names the subsystem emitting the record.
func Component(name string) slog.Attr {
	return slog.String("component", name)
}

// Table records a cache table name.
func Table(name string) slog.Attr {
	return slog.String("table", name)
}

// StoreID records a store instance ID.
func StoreID(id string) slog.Attr {
	return slog.String("store_id", id)
}

// Group creates a group attr from attrs.
func Group(name string, attrs ...slog.Attr) slog.Attr {
	return slog.Attr{Key: name, Value: slog.GroupValue(attrs...)}
}
