package main

import (
	"market-analytics/src/config"
	"market-analytics/src/grpc_control"
	"market-analytics/src/interfaces"
	"market-analytics/src/logger"
	"market-analytics/src/server"
)

// -----------------------------------------------------------------------------

// startServers starts the HTTP API and, when a port is configured, the gRPC
// control server. The returned servers are stopped in order on shutdown.
func startServers(conf *config.Config, app *pipeline, appLogger *logger.Logger) []interfaces.IDataExchanger {
	var servers []interfaces.IDataExchanger

	// 1. HTTP API and websocket stream
	api := server.NewAPIServer(conf.MConfig, appLogger.Named("api"), app.facade, app.orchestrator, app.cache, app.markets)
	api.Events = app.history
	app.bus.Subscribe(api.Hub)
	servers = append(servers, api)
	go func() {
		if err := api.Start(); err != nil {
			appLogger.Error("Server failed: %v", err)
		}
	}()

	// 2. gRPC Control Server
	if conf.GrpcPort != 0 {
		control := grpc_control.NewControlService(app.orchestrator, app.cache, appLogger.Named("grpc"))
		grpcServer := grpc_control.NewGRPCServer(conf.GrpcHost, conf.GrpcPort, control, appLogger.Named("grpc"))
		servers = append(servers, grpcServer)
		go func() {
			if err := grpcServer.Start(); err != nil {
				appLogger.Error("gRPC server failed: %v", err)
			}
		}()
	}

	return servers
}
