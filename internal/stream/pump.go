package stream

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/onemin-relay/relay/internal/relay"
)

const readChunkSize = 4096

// UsageFunc computes the final usage block from the accumulated completion
// text once the downstream stream ends.
type UsageFunc func(completion string) *relay.Usage

// Pump copies a downstream text stream into w as chat.completion.chunk SSE
// events, finishing with a stop chunk, the usage block, and the DONE
// sentinel. It owns body and closes it. Write errors mean the consumer went
// away; the pump stops and cleans up without surfacing anything.
func Pump(w io.WriteCloser, body io.ReadCloser, model string, usage UsageFunc, logger *slog.Logger) {
	defer w.Close()
	defer body.Close()

	var (
		reassembler Reassembler
		completion  []byte
		buf         = make([]byte, readChunkSize)
	)

	for {
		n, err := body.Read(buf)

		if n > 0 {
			text := reassembler.Decode(buf[:n])
			if text != "" {
				completion = append(completion, text...)

				if writeEvent(w, relay.NewContentChunk(model, text)) != nil {
					return
				}
			}
		}

		if err == io.EOF {
			break
		}

		if err != nil {
			logger.Error("Streaming error", "error", err)
			return
		}
	}

	if tail := reassembler.Flush(); tail != "" {
		completion = append(completion, tail...)

		if writeEvent(w, relay.NewContentChunk(model, tail)) != nil {
			return
		}
	}

	var finalUsage *relay.Usage
	if usage != nil {
		finalUsage = usage(string(completion))
	}

	if writeEvent(w, relay.NewStopChunk(model, finalUsage)) != nil {
		return
	}

	_, _ = fmt.Fprint(w, "data: [DONE]\n\n")
}

func writeEvent(w io.Writer, chunk *relay.ChatCompletionChunk) error {
	payload, err := json.Marshal(chunk)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintf(w, "data: %s\n\n", payload)

	return err
}
