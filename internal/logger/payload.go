package logger

import (
	"io"
	"log"
	"strings"
	"sync"
)

var (
	payloadMu   sync.Mutex
	payloadLog  *log.Logger
	payloadDump bool
)

// SetPayloadWriter routes raw upstream payload dumps to w; nil disables them.
func SetPayloadWriter(w io.Writer) {
	payloadMu.Lock()
	defer payloadMu.Unlock()
	if w == nil {
		payloadLog = nil
		return
	}
	payloadLog = log.New(w, "", log.LstdFlags)
}

func EnablePayloadDump(enabled bool) {
	payloadMu.Lock()
	payloadDump = enabled
	payloadMu.Unlock()
}

// PayloadDumpEnabled reports whether DumpPayload will write anything.
func PayloadDumpEnabled() bool {
	payloadMu.Lock()
	defer payloadMu.Unlock()
	return payloadDump && payloadLog != nil
}

// DumpPayload writes one framed raw response body, tagged by source and purpose.
func DumpPayload(source, purpose, body string) {
	payloadMu.Lock()
	l := payloadLog
	enabled := payloadDump
	payloadMu.Unlock()
	if l == nil || !enabled {
		return
	}
	text := strings.TrimSpace(body)
	if text == "" {
		return
	}
	var b strings.Builder
	b.WriteString("[PAYLOAD]")
	for _, tag := range []string{source, purpose} {
		if tag == "" {
			continue
		}
		b.WriteString("[")
		b.WriteString(tag)
		b.WriteString("]")
	}
	b.WriteString("\n")
	b.WriteString(text)
	if !strings.HasSuffix(text, "\n") {
		b.WriteString("\n")
	}
	b.WriteString("=====\n")
	l.Print(b.String())
}
