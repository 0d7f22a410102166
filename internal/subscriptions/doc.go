// Package subscriptions stores the performers, studios and scenes being
// followed.
package subscriptions
