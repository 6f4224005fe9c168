package main

// General API documentation for swaggo. Run `make swagger-gen` to generate docs.
//
// @title           residencyd API
// @version         1.0
// @description     HTTP API for model residency caching and lifecycle management.
//
// @contact.name   residencyd maintainers
// @contact.url    https://github.com/your-org/residencyd
//
// @license.name   MIT
// @license.url    https://opensource.org/licenses/MIT
//
// @BasePath  /
//
// @schemes http
