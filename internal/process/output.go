package process

import (
	"bufio"
	"os"

	"go.uber.org/zap"
)

const maxLineSize = 1024 * 1024

// forward logs each line the sidecar writes to stream until every holder
// of the pipe's write end is gone.
func (h *Handle) forward(r *os.File, stream string) {
	defer h.output.Done()
	defer r.Close()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), maxLineSize)
	for scanner.Scan() {
		h.logger.Info("Sidecar output", zap.String("stream", stream), zap.String("line", scanner.Text()))
	}
	if err := scanner.Err(); err != nil {
		h.logger.Debug("Sidecar output closed", zap.String("stream", stream), zap.Error(err))
	}
}
