// Package server 开发用的对话存储 HTTP 服务，实现网关所需的全部路由
// Package server is the development chat store: an HTTP implementation of the
// routes the gateway client talks to, backed by SQLite and a responder.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"voicechat/internal/logging"
	"voicechat/internal/responder"
	"voicechat/internal/storage"
)

// maxUploadBytes 单个上传文件上限 / upper bound for one uploaded file
const maxUploadBytes = 32 << 20

type Options struct {
	UploadDir string
	Logger    logrus.FieldLogger
	Now       func() time.Time
}

type Server struct {
	store     storage.Store
	responder responder.Responder
	uploadDir string
	log       logrus.FieldLogger
	now       func() time.Time

	// threadLocks 串行化同一线程的发送 / serializes sends on one thread
	threadLocks sync.Map
}

func New(store storage.Store, resp responder.Responder, opts Options) (*Server, error) {
	if strings.TrimSpace(opts.UploadDir) == "" {
		return nil, errors.New("upload dir is empty")
	}
	if err := os.MkdirAll(opts.UploadDir, 0o755); err != nil {
		return nil, fmt.Errorf("create upload dir: %w", err)
	}
	if resp == nil {
		resp = responder.Echo{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.Discard()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Server{
		store:     store,
		responder: resp,
		uploadDir: opts.UploadDir,
		log:       opts.Logger,
		now:       opts.Now,
	}, nil
}

// Handler 返回带日志中间件的路由 / Handler returns the routes wrapped in request logging
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /chats/get-all", s.handleListChats)
	mux.HandleFunc("POST /chats/create-thread", s.handleCreateThread)
	mux.HandleFunc("GET /chats/threads/{id}/messages", s.handleMessages)
	mux.HandleFunc("POST /chats/threads/{id}/messages", s.handleSend)
	mux.HandleFunc("POST /files/upload", s.handleUpload)
	mux.HandleFunc("GET /files/download/{name}", s.handleDownload)
	return s.logRequests(mux)
}

// Serve 监听 addr 直到 ctx 取消，然后优雅关闭
// Serve listens on addr until ctx is cancelled, then shuts down gracefully
func (s *Server) Serve(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	return s.ServeListener(ctx, ln)
}

func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.WithField("addr", ln.Addr().String()).Info("chat store listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.log.Info("chat store shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) lockThread(threadID string) func() {
	v, _ := s.threadLocks.LoadOrStore(threadID, &sync.Mutex{})
	mu := v.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

// statusRecorder 记录响应状态码 / statusRecorder captures the response status
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (w *statusRecorder) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": time.Since(start).String(),
		}).Debug("http request")
	})
}
