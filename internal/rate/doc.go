// Package rate enforces failed-login budgets with Redis counters.
package rate
