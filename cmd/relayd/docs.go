package main

// General API documentation for swaggo. Generate with `swag init -g cmd/relayd/docs.go`.
//
// @title           relayd API
// @version         1.0
// @description     Streaming HTTP relay for a local Ollama-compatible model daemon.
//
// @contact.name   relayd maintainers
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
