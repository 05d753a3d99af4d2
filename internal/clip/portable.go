package clip

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"golang.design/x/clipboard"

	"go.klb.dev/clipfile/internal/clipfmt"
)

// portableService emulates the file formats on top of a text-only clipboard
// (macOS pasteboard, Windows clipboard). A claim writes the native body as
// text; a clipboard whose text parses as a native body is reported as
// offering all three formats. This only interoperates with other clipfile
// processes, not with the platform's file manager.
type portableService struct{}

func newPortable() (Service, error) {
	if err := clipboard.Init(); err != nil {
		return nil, fmt.Errorf("portable clipboard: %w", err)
	}
	return portableService{}, nil
}

func (portableService) Name() string { return "portable text clipboard" }

func (portableService) Claim(_ context.Context, formats []clipfmt.Format, serve ServeFunc) (<-chan struct{}, error) {
	order := append([]clipfmt.Format{clipfmt.FormatNative}, formats...)
	for _, f := range order {
		data, ok := serve(f)
		if !ok {
			continue
		}
		changed := clipboard.Write(clipboard.FmtText, data)
		if changed == nil {
			return nil, errors.New("portable clipboard: write failed")
		}
		return changed, nil
	}
	return nil, errors.New("portable clipboard: nothing to offer")
}

func (portableService) Targets(context.Context) (TargetSet, error) {
	text := clipboard.Read(clipboard.FmtText)
	switch {
	case clipfmt.LooksNative(text):
		return TargetSet(clipfmt.Formats), nil
	case len(text) > 0:
		return TargetSet{clipfmt.FormatText}, nil
	}
	return nil, nil
}

func (portableService) Request(_ context.Context, f clipfmt.Format) ([]byte, error) {
	text := clipboard.Read(clipboard.FmtText)
	native := clipfmt.LooksNative(text)
	switch {
	case f == clipfmt.FormatNative && native:
		return text, nil
	case f == clipfmt.FormatURIList && native:
		_, list, _ := strings.Cut(string(text), "\n")
		return []byte(list), nil
	case clipfmt.IsText(f) && len(text) > 0:
		return text, nil
	}
	return nil, ErrNotOffered
}

func (portableService) SetText(_ context.Context, text string) error {
	clipboard.Write(clipboard.FmtText, []byte(text))
	return nil
}

func (portableService) Close() {}
