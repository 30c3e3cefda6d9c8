package logger

import (
	"bufio"
	"context"
	"io"
)

// DrainLines reads r line by line and logs each line at debug level until r
// is exhausted. Used for worker stderr, which must be drained so the worker
// never blocks on a full pipe.
func DrainLines(ctx context.Context, r io.Reader, source string) {
	scanner := bufio.NewScanner(r)
	const maxScanTokenSize = 1024 * 1024
	buf := make([]byte, 64*1024)
	scanner.Buffer(buf, maxScanTokenSize)

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		DebugContext(ctx, "worker output", "source", source, "line", line)
	}
	if err := scanner.Err(); err != nil {
		DebugContext(ctx, "worker output stream ended", "source", source, "error", err)
		_, _ = io.Copy(io.Discard, r)
	}
}
