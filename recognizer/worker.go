package recognizer

import (
	"encoding/json"
	"errors"
	"io"
	"time"

	"streamhwd/log"
)

// serverMessage treats a null field as absent, and a non-string field fails
// the decode.
type serverMessage struct {
	Partial *string `json:"partial"`
	Text    *string `json:"text"`
}

// run consumes server messages until the connection goes away or a final
// transcript arrives after a detection.
func (s *Session) run() {
	var partial, final *Candidate

	for {
		conn := s.currentConn()
		if conn == nil {
			break
		}
		data, err := conn.ReadMessage()
		if err != nil {
			switch {
			case s.currentConn() == nil:
			case errors.Is(err, io.EOF):
				log.Infof("session %s: server closed the stream", s.id)
			default:
				log.Warnf("session %s: receive: %v", s.id, err)
			}
			break
		}

		var msg serverMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			s.mu.Lock()
			s.stats.DecodeErrors++
			s.mu.Unlock()
			s.cfg.Metrics.DecodeFailed()
			continue
		}
		s.mu.Lock()
		s.stats.RecvMessages++
		s.mu.Unlock()

		if msg.Partial != nil {
			s.cfg.Metrics.MessageReceived("partial")
			if s.State() != StateArmed {
				continue
			}
			if c, ok := s.cfg.Processor.Process(*msg.Partial, nil); ok {
				partial = &c
				s.mu.Lock()
				s.modelInfo = c.ModelInfo()
				s.mu.Unlock()
				s.hasDetected()
			}
		} else if msg.Text != nil {
			s.cfg.Metrics.MessageReceived("text")
			if !s.State().known() {
				continue
			}
			if c, ok := s.cfg.Processor.Process(*msg.Text, partial); ok {
				final = &c
				s.hasDetected()
			}
			if s.State() != StateArmed {
				break
			}
		} else {
			s.cfg.Metrics.MessageReceived("other")
		}
	}

	s.finish(partial, final)
}

func (s *Session) finish(partial, final *Candidate) {
	defer close(s.done)

	chosen := partial
	if final != nil && final.Confident() {
		chosen = final
	}

	s.mu.Lock()
	s.timing.Final = time.Now()
	if chosen != nil {
		s.modelInfo = chosen.ModelInfo()
		s.result.Text = chosen.Text
	}
	s.result.ModelInfo = s.modelInfo
	s.result.OK = s.result.Text != ""
	s.result.Timing = s.timing
	res := s.result
	stats := s.stats
	s.mu.Unlock()

	s.cfg.Metrics.SessionFinished(res.OK, res.RecognitionTime(), res.RecordTime())
	log.SessionResult(log.SessionResultData{
		ID:            s.id,
		OK:            res.OK,
		Model:         res.ModelInfo.Model,
		Phrase:        res.ModelInfo.Phrase,
		RecognitionMs: float64(res.RecognitionTime().Milliseconds()),
		RecordMs:      float64(res.RecordTime().Milliseconds()),
		SentFrames:    stats.SentFrames,
		SentKB:        float64(stats.SentBytes) / 1024,
		RecvMessages:  stats.RecvMessages,
		DecodeErrors:  stats.DecodeErrors,
	})
	if res.OK {
		log.Detection(res.ModelInfo.Model, res.Text)
	}
}
