// Command datahookdemo wires the controller family, the built-in
// plugins, and the fasthttpt transport against a throwaway HTTP
// backend, the way a host application assembles them. It prints each
// response, and a line whenever the cache entry of its subscribed key
// (the read with empty options) changes.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/http/httptest"

	"github.com/maximhq/datahook/config"
	"github.com/maximhq/datahook/controller"
	"github.com/maximhq/datahook/eventbus"
	"github.com/maximhq/datahook/logger"
	"github.com/maximhq/datahook/plugin"
	"github.com/maximhq/datahook/plugins/cache"
	"github.com/maximhq/datahook/plugins/invalidation"
	"github.com/maximhq/datahook/schemas"
	"github.com/maximhq/datahook/statemanager"
	"github.com/maximhq/datahook/transport/fasthttpt"
)

func main() {
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			fmt.Fprint(w, `{"id":1,"title":"hello"}`)
		case http.MethodPost:
			w.WriteHeader(http.StatusCreated)
			fmt.Fprint(w, `{"id":1,"title":"updated"}`)
		}
	}))
	defer backend.Close()

	defaults, err := config.Load("datahook.yaml")
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	lg := logger.NewDefault()
	client := fasthttpt.New(backend.URL)

	ex, err := plugin.NewExecutor([]plugin.Plugin{cache.New(defaults.Cache.StaleTimeMS), invalidation.New()})
	if err != nil {
		lg.Error("build executor: %v", err)
		return
	}

	sm := statemanager.New()
	bus := eventbus.New()

	read := controller.New(controller.Config{
		Path: "/posts/1", Method: schemas.MethodGet, OperationType: schemas.OperationRead,
		Tags: []string{"posts"}, Executor: ex, StateManager: sm, EventBus: bus,
		Transport: client.Do, Logger: lg,
	})
	write := controller.New(controller.Config{
		Path: "/posts/1", Method: schemas.MethodPost, OperationType: schemas.OperationWrite,
		Tags: []string{"posts"}, Executor: ex, StateManager: sm, EventBus: bus,
		Transport: client.Do, Logger: lg,
	})

	unsubscribe := read.Subscribe(schemas.RequestOptions{}, func() {
		fmt.Println("cache entry changed")
	})
	defer unsubscribe()

	ctx := context.Background()
	readOpts := schemas.RequestOptions{PluginOptions: map[string]any{"staleTime": int64(60_000)}}

	resp, err := read.Execute(ctx, readOpts, false)
	if err != nil {
		lg.Error("read: %v", err)
		return
	}
	fmt.Printf("first read: %+v\n", resp.Data)

	resp, err = read.Execute(ctx, readOpts, false)
	if err != nil {
		lg.Error("cached read: %v", err)
		return
	}
	fmt.Printf("cached read (no transport call expected): %+v\n", resp.Data)

	resp, err = write.Execute(ctx, schemas.RequestOptions{Body: map[string]any{"title": "updated"}}, false)
	if err != nil {
		lg.Error("write: %v", err)
		return
	}
	fmt.Printf("write response: %+v\n", resp.Data)

	resp, err = read.Execute(ctx, schemas.RequestOptions{}, false)
	if err != nil {
		lg.Error("read after invalidation: %v", err)
		return
	}
	fmt.Printf("read after invalidation: %+v\n", resp.Data)
}
