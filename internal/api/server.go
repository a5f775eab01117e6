package api

import (
	"bufio"
	"context"
	"fmt"
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"

	"github.com/taranp/isolab/internal/scenario"
	"github.com/taranp/isolab/pkg/errors"
	"github.com/taranp/isolab/pkg/isolevel"
	"github.com/taranp/isolab/pkg/logger"
)

func NewServer(cfg Config, log logger.Logger, sim Simulator, store Store, events Events) Server {
	serveLog := log.With("api_http_server")

	fiberCfg := fiber.Config{
		ReadTimeout:             cfg.HTTP.ReadTimeout,
		WriteTimeout:            cfg.HTTP.WriteTimeout,
		IdleTimeout:             cfg.HTTP.IdleTimeout,
		DisableStartupMessage:   true,
		EnableTrustedProxyCheck: true,
		ProxyHeader:             cfg.Proxy.Header,
		TrustedProxies:          cfg.Proxy.Trusted,
		RequestMethods:          []string{fiber.MethodGet, fiber.MethodHead, fiber.MethodPost},
	}

	fiberCfg.ErrorHandler = func(c *fiber.Ctx, err error) error {
		serveLog.Warn(errors.WrapFail(err, "handle http request"))
		return c.Status(http.StatusInternalServerError).Send(nil)
	}

	s := &server{
		sim:    sim,
		store:  store,
		events: events,
		http:   fiber.New(fiberCfg),
		addr:   cfg.HTTP.Addr,
		log:    serveLog,
	}

	s.setupRoutes()

	return s
}

type server struct {
	sim    Simulator
	store  Store
	events Events
	http   *fiber.App
	addr   string
	log    logger.Logger
}

func (s *server) Serve(ctx context.Context) error {
	errCh := make(chan error)
	go func() { errCh <- s.http.Listen(s.addr) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return errors.Error("serve context done")
	}
}

func (s *server) Shutdown(ctx context.Context) error {
	return errors.WrapFail(s.http.ShutdownWithContext(ctx), "shutdown http server")
}

func (s *server) setupRoutes() {
	s.http.Post("/scenarios/:anomaly/:role", s.handleSimulate)
	s.http.Get("/events", s.handleEvents)
	s.http.Post("/reset", s.handleReset)
	s.http.Get("/orders", s.handleOrders)
}

type simulateRequest struct {
	IsolationLevel  string `json:"isolationLevel"`
	IsSuccess       *bool  `json:"isSuccess,omitempty"`
	IsExclusiveLock bool   `json:"isExclusiveLock,omitempty"`
}

// handleSimulate runs one role of one anomaly scenario and replies
// with an empty acknowledgement. A scenario that rolled back is
// still an acknowledged request; only a transaction that could not
// be opened surfaces as an http error.
func (s *server) handleSimulate(c *fiber.Ctx) error {
	var req simulateRequest
	err := c.BodyParser(&req)
	if err != nil {
		s.log.Warn(errors.WrapFail(err, "unmarshal simulate payload"))
		return s.sendError(c, http.StatusBadRequest, "bad json")
	}

	opts := scenario.Options{
		Success:       req.IsSuccess == nil || *req.IsSuccess,
		ExclusiveLock: req.IsExclusiveLock,
	}

	sc, err := scenario.Build(
		scenario.Anomaly(c.Params("anomaly")),
		scenario.Role(c.Params("role")),
		opts,
	)
	if err != nil {
		s.log.Warn(errors.WrapFail(err, "build scenario script"))
		return s.sendError(c, http.StatusBadRequest, err.Error())
	}

	err = s.sim.Run(c.Context(), sc, isolevel.Resolve(req.IsolationLevel), opts)
	if err != nil {
		return errors.WrapFailf(err, "run %s/%s scenario", sc.Anomaly, sc.Role)
	}

	return c.Status(http.StatusOK).Send(nil)
}

// handleEvents streams narration lines to the client as
// server-sent events until the client goes away or the hub closes.
func (s *server) handleEvents(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")

	id, lines := s.events.Attach()

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer s.events.Detach(id)

		for line := range lines {
			_, err := fmt.Fprintf(w, "event: ReceiveTransactionState\ndata: %s\n\n", line)
			if err != nil {
				return
			}
			if err = w.Flush(); err != nil {
				return
			}
		}
	}))

	return nil
}

func (s *server) handleReset(c *fiber.Ctx) error {
	err := s.store.Reset(c.Context())
	if err != nil {
		return errors.WrapFail(err, "reset orders")
	}

	return c.Status(http.StatusOK).Send(nil)
}

func (s *server) handleOrders(c *fiber.Ctx) error {
	list, err := s.store.List(c.Context())
	if err != nil {
		return errors.WrapFail(err, "list orders")
	}

	return c.Status(http.StatusOK).JSON(list)
}

func (s *server) sendError(c *fiber.Ctx, status int, msg string) error {
	return c.Status(status).JSON(map[string]string{"status": "ERROR", "message": msg})
}
