// Package textnorm turns free-text release and scene titles into a stable,
// comparable form: lowercase ASCII without release noise, plus a token list.
package textnorm
