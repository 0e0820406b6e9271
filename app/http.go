package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	apischedule "github.com/kilianp07/runsheet/api/schedule"
)

// Handler returns the schedule API of the service.
func (s *Service) Handler() http.Handler {
	return apischedule.NewHandler(s, s.runs, s.cfg.HTTP.Token)
}

func (s *Service) serveAPI(ctx context.Context) error {
	srv := &http.Server{Addr: s.cfg.HTTP.Addr, Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.Errorf("api server shutdown: %v", err)
		}
		cancel()
	}()
	s.log.Infof("api listening on %s", s.cfg.HTTP.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
