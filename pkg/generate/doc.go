// Package generate abstracts hosted text-generation backends behind a
// single prompt-completion interface. Providers are stateless and safe for
// concurrent use across sessions.
package generate
