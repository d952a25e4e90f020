// Package crawler defines core types shared across subsystems.
package crawler
