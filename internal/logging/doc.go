// Package logging builds zerolog loggers and adapts them for gorm and cron.
package logging
