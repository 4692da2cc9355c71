// Package logx is a thin structured-logging layer over zerolog.
//
// Services receive a Logger value; the zero value is a safe no-op, so
// components can be constructed before logging is configured. The
// Service owns the sinks (console, file) and can swap level and
// outputs at runtime via Apply without invalidating loggers already
// handed out.
package logx
