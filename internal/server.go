package internal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nocturnecity/upload-resizer/pkg"
)

const maxRequestBytes = 1 << 20

type Server struct {
	port         int
	logger       *StdLog
	server       *http.Server
	pool         *Pool
	codec        Codec
	timeout      time.Duration
	workersCount int
	resizerCfg   ResizerConfig
}

// Define a new Prometheus counter
var resizeRequests = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "resize_requests_total",
		Help: "Total number of resize requests received.",
	},
)

var queueLength = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "queue_length",
		Help: "Current Queue length.",
	},
)

var (
	resizeDurationWithQueueWait = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "resize_duration_with_queue_wait_milliseconds",
		Help:    "The duration of the resize plus waiting in queue in milliseconds",
		Buckets: prometheus.ExponentialBuckets(10, 2, 14), // 10ms to ~80 seconds
	})
)

var (
	resizeDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "resize_duration_milliseconds",
		Help:    "The duration of the resize in milliseconds",
		Buckets: prometheus.ExponentialBuckets(10, 2, 14),
	})
)

var failedResizes = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "resize_failures_total",
		Help: "Total number of failed resize operations.",
	},
)

var resizedSizes = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "resized_sizes_total",
		Help: "Total number of renditions produced, by size name.",
	},
	[]string{"size"},
)

var skippedSizes = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "skipped_sizes_total",
		Help: "Total number of configured sizes skipped because the source was too small.",
	},
)

var registerMetrics sync.Once

func (s *Server) Handler() http.Handler {
	registerMetrics.Do(func() {
		prometheus.MustRegister(queueLength)
		prometheus.MustRegister(resizeRequests)
		prometheus.MustRegister(failedResizes)
		prometheus.MustRegister(resizeDuration)
		prometheus.MustRegister(resizeDurationWithQueueWait)
		prometheus.MustRegister(resizedSizes)
		prometheus.MustRegister(skippedSizes)
	})

	mux := http.NewServeMux()

	mux.HandleFunc("/resize", s.resizeHandler)

	mux.HandleFunc("/healthz", s.healthzHandler)

	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

func (s *Server) Run() {
	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", s.port),
		Handler:      s.Handler(),
		ReadTimeout:  s.timeout,
		WriteTimeout: s.timeout,
	}

	s.server = server

	s.pool = NewPool(s.logger, s.workersCount)
	s.pool.Run()
	go func() {
		s.logger.Info("ListenAndServe() on port: %d", s.port)
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			s.Stop(context.Background())
			s.logger.Fatal("ListenAndServe(): %v", err)
		}
	}()
}

func (s *Server) Stop(ctx context.Context) {
	if s.server != nil {
		if err := s.server.Shutdown(ctx); err != nil {
			s.logger.Error("HTTP server Shutdown: %v", err)
		}
	}
	if s.pool != nil {
		s.pool.ShutDown()
	}
	s.logger.Info("Application stopped")
}

func (s *Server) resizeHandler(w http.ResponseWriter, r *http.Request) {
	resizeRequests.Inc()
	start := time.Now()

	if !s.isValidRequest(w, r) {
		return
	}
	reqBody, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		failedResizes.Inc()
		s.processHttpError(r, w, fmt.Errorf("error reading request body: %w", err), http.StatusBadRequest)
		return
	}
	var req pkg.Request
	err = json.Unmarshal(reqBody, &req)
	if err != nil {
		failedResizes.Inc()
		s.processHttpError(r, w, fmt.Errorf("error unmarshal request: %w", err), http.StatusBadRequest)
		return
	}
	err = req.Validate()
	if err != nil {
		failedResizes.Inc()
		s.processHttpError(r, w, fmt.Errorf("validation error: %w", err), http.StatusBadRequest)
		return
	}

	handler := NewResizeHandler(req, s.logger, s.codec, s.resizerCfg)
	resChan := make(chan jobResult, 1)
	queueLength.Inc()
	defer queueLength.Dec()
	err = s.pool.Dispatch(r.Context(), job{
		ctx: r.Context(),
		h:   handler,
		c:   resChan,
	})
	if err != nil {
		failedResizes.Inc()
		s.processHttpError(r, w, fmt.Errorf("request abandoned in queue: %w", err), http.StatusServiceUnavailable)
		return
	}
	dispatched := time.Now()
	poolRes := <-resChan
	resizeDuration.Observe(float64(time.Since(dispatched).Milliseconds()))
	res, err := poolRes.result, poolRes.err
	if err != nil {
		failedResizes.Inc()
		s.processHttpError(r, w, fmt.Errorf("failed to process image: %w", err), statusOf(err))
		return
	}
	for name := range res.Sizes {
		resizedSizes.WithLabelValues(name).Inc()
	}
	skippedSizes.Add(float64(len(res.Skipped)))

	durationMs := float64(time.Since(start).Milliseconds())
	resizeDurationWithQueueWait.Observe(durationMs)
	s.logger.Debug("RESIZE OBSERVED EXECUTION TIME FOR %s: %.2f sec", req.OriginalPath, durationMs/1000)
	s.processHttpSuccess(r, w, res.Sizes)
}

// statusOf maps a processing failure to the HTTP status reported to the client.
func statusOf(err error) int {
	var codecErr *CodecError
	var sanitizeErr *SanitizationError
	switch {
	case errors.As(err, &codecErr), errors.As(err, &sanitizeErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func (s *Server) isValidRequest(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		s.processHttpError(r, w, fmt.Errorf("invalid http method: %s", r.Method), http.StatusNotFound)
		return false
	}

	contentType := r.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "application/json") {
		s.processHttpError(r, w, fmt.Errorf("invalid content type: %s", contentType), http.StatusUnsupportedMediaType)
		return false
	}

	return true
}

func (s *Server) processHttpError(r *http.Request, w http.ResponseWriter, err error, status int) {
	if status >= 500 {
		s.logger.Error("%s %s error %v", r.Method, r.URL, err.Error())
	} else {
		s.logger.Warn("%s %s %d %v", r.Method, r.URL, status, err.Error())
	}
	response := pkg.ErrorResponse{
		Error: err.Error(),
	}
	if status >= 500 {
		response.Error = "Internal Server error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	err = json.NewEncoder(w).Encode(response)
	if err != nil {
		s.logger.Error("error writing error response: %v", err)
	}
}

func (s *Server) processHttpSuccess(r *http.Request, w http.ResponseWriter, sizes pkg.FileSizes) {
	response := pkg.Response{
		Sizes: sizes,
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	err := json.NewEncoder(w).Encode(response)
	if err != nil {
		s.logger.Error("error writing response: %v", err)
		return
	}
	s.logger.Info("%s %s %d", r.Method, r.URL, http.StatusOK)
}

func (s *Server) healthzHandler(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	s.logger.Debug("%s %s %d", r.Method, r.URL, http.StatusOK)
}

func NewHttpServer(port int, timeout time.Duration, workersCount int, cfg ResizerConfig, logger *StdLog) *Server {
	return &Server{
		port:         port,
		logger:       logger,
		timeout:      timeout,
		workersCount: workersCount,
		resizerCfg:   cfg,
		codec:        NewImagingCodec(),
	}
}
