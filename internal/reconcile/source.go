package reconcile

import (
	"context"
	"errors"
	"fmt"

	"tradedesk/internal/pkg/symbol"
	"tradedesk/internal/types"
)

var (
	ErrUnknownSource = errors.New("unknown source")
	ErrInvalidWindow = errors.New("invalid window")
)

// Source is an upstream that returns raw trade activity for a window. A
// source emits either fills (KindFill) or closed trades (KindClosedTrade).
type Source interface {
	Name() string
	Kind() types.RecordKind
	Fetch(ctx context.Context, req types.FetchRequest) ([]types.RawRecord, error)
}

// SymbolSource is implemented by sources whose records are labelled through
// a symbol converter. Request symbols are passed through the same converter
// so that "BTC", "BTC/USDC" and "BTC/USDC:USDC" select the same trades.
type SymbolSource interface {
	Symbols() symbol.Converter
}

// UpstreamError wraps a failed chunk fetch.
type UpstreamError struct {
	Source string
	Window types.Window
	Err    error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s fetch %s: %v", e.Source, e.Window, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }
