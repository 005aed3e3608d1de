// Package rag answers recipe questions by retrieval-augmented generation.
//
// A request flows through a fixed sequence of stages:
//
//	query -> embed -> retrieve top-k recipes -> sanitize -> compose prompt -> generate
//
// The Pipeline owns the external calls and their timeouts. The pure stages
// (Sanitize, FormatHistory and Composer.Compose) are exported separately so
// they can be tested and reused without any upstream service.
//
// Basic usage:
//
//	pipeline, err := rag.NewPipeline(index, provider, rag.WithTopK(4))
//	if err != nil {
//	    return err
//	}
//
//	answer, err := pipeline.Answer(ctx, &core.Request{Query: "egg fried rice?"})
//	if err != nil {
//	    return err // nothing was produced
//	}
//	defer answer.Close()
//	for answer.Next() {
//	    fmt.Print(answer.Fragment())
//	}
//	if err := answer.Err(); err != nil {
//	    // core.ErrMidStreamFailure: the answer is truncated
//	}
//
// Errors returned by Answer before the first fragment are classified with
// the sentinels in package core. Retrieved records never reach the model
// with fields outside the context allow-list, see AllowedContextFields.
package rag
