package api

// @title gorged admin API
// @version v0.1.0
// @description Inspect interceptors, pause rewriting and browse intercept events.

// @host localhost:8778
// @BasePath /api
// @schemes http
