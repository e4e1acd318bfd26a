package consumerWorker

import (
	"context"
	"encoding/json"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/mailer"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/metrics"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/notify"
	"github.com/MarkPagkaliwagan/SASO-Nexus-sub000/internal/rabbit"
)

type Consumer interface {
	Consume(ctx context.Context, handler rabbit.Handler) error
}

// Reader turns queued notices into mail, at most ratePerSec mails per second.
type Reader struct {
	consumer Consumer
	mailer   mailer.Mailer
	limiter  *rate.Limiter
	log      *zerolog.Logger
	done     chan struct{}
	cancel   context.CancelFunc
}

func NewReader(c Consumer, m mailer.Mailer, ratePerSec float64, log *zerolog.Logger) *Reader {
	limit := rate.Inf
	burst := 1
	if ratePerSec > 0 {
		limit = rate.Limit(ratePerSec)
		burst = int(ratePerSec)
		if burst < 1 {
			burst = 1
		}
	}
	return &Reader{
		consumer: c,
		mailer:   m,
		limiter:  rate.NewLimiter(limit, burst),
		log:      log,
		done:     make(chan struct{}),
	}
}

func (r *Reader) Start(ctx context.Context) {
	cctx, cancel := context.WithCancel(ctx)
	r.cancel = cancel

	r.log.Info().Msg("notification reader started")

	go func() {
		defer close(r.done)
		if err := r.consumer.Consume(cctx, r.Handle); err != nil {
			r.log.Error().Err(err).Msg("notification reader stopped with error")
			return
		}
		r.log.Info().Msg("notification reader stopped by context")
	}()
}

// Handle processes one queue message. Malformed messages and mail failures are
// logged and acknowledged so they do not loop through the queue forever.
func (r *Reader) Handle(ctx context.Context, body []byte) error {
	var notice notify.Notice
	if err := json.Unmarshal(body, &notice); err != nil {
		r.log.Error().Err(err).Str("body", string(body)).Msg("failed to unmarshal notice")
		return nil
	}

	msg, err := notify.Render(notice)
	if err != nil {
		r.log.Error().Err(err).Int64("application_id", notice.ApplicationID).Msg("cannot render notice")
		return nil
	}

	if err := r.limiter.Wait(ctx); err != nil {
		// ctx is done: requeue.
		return err
	}

	if err := r.mailer.Send(ctx, msg); err != nil {
		metrics.IncNotification("failed")
		r.log.Warn().Err(err).
			Int64("application_id", notice.ApplicationID).
			Msg("failed to send notification e-mail")
		return nil
	}
	metrics.IncNotification("sent")
	r.log.Info().
		Str("email", notice.Email).
		Int64("application_id", notice.ApplicationID).
		Msg("notification e-mail sent")
	return nil
}

func (r *Reader) Stop() {
	if r.cancel != nil {
		r.cancel()
		<-r.done
	}
}
