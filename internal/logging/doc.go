// Package logging builds the logrus loggers used by the command line tool and adapts them to
// third-party logger interfaces.
package logging
