package engine

import (
	"fmt"

	stderrors "github.com/orizon-lang/mpatrolgo/internal/errors"
)

// errAllocZero et al. build §7 errors annotated with the call context
// and, where relevant, the record's own context (the allocation site),
// so both the triggering call and the implicated prior allocation are
// visible in the summary report.

func errAllocZero(ctx CallContext) error {
	return stderrors.New(stderrors.CodeAllocZero, "allocation of size zero", ctxFields(ctx, nil))
}

func errReallocNull(ctx CallContext) error {
	return stderrors.New(stderrors.CodeReallocNull, "resize of a null pointer", ctxFields(ctx, nil))
}

func errReallocZero(ctx CallContext) error {
	return stderrors.New(stderrors.CodeReallocZero, "resize to size zero", ctxFields(ctx, nil))
}

func errFreeNull(ctx CallContext) error {
	return stderrors.New(stderrors.CodeFreeNull, "free of a null pointer", ctxFields(ctx, nil))
}

func errZeroAlign(ctx CallContext) error {
	return stderrors.New(stderrors.CodeZeroAlign, "alignment of zero coerced to natural alignment", ctxFields(ctx, nil))
}

func errBadAlign(ctx CallContext, requested uintptr) error {
	return stderrors.New(stderrors.CodeBadAlign, fmt.Sprintf("alignment %d is not a power of two", requested), ctxFields(ctx, nil))
}

func errMaxAlign(ctx CallContext, requested, max uintptr) error {
	return stderrors.New(stderrors.CodeMaxAlign, fmt.Sprintf("alignment %d exceeds page size %d", requested, max), ctxFields(ctx, nil))
}

func errNotAllocated(ctx CallContext, ptr uintptr) error {
	return stderrors.New(stderrors.CodeNotAllocated, fmt.Sprintf("0x%x was never allocated", ptr), ctxFields(ctx, nil))
}

func errMismatchedFree(ctx CallContext, ptr uintptr, owner *Record) error {
	return stderrors.New(stderrors.CodeMismatchedFree, fmt.Sprintf("0x%x is an interior pointer into 0x%x", ptr, owner.Base), ctxFields(ctx, owner))
}

func errPreviouslyFreed(ctx CallContext, ptr uintptr, prior *Record) error {
	return stderrors.New(stderrors.CodePreviouslyFreed, fmt.Sprintf("0x%x was already released", ptr), ctxFields(ctx, prior))
}

func errIncompatibleRelease(ctx CallContext, releaseKind Kind, owner *Record) error {
	msg := fmt.Sprintf("cannot release a %s allocation with %s", owner.Kind, releaseKind)
	return stderrors.New(stderrors.CodeIncompatibleRelease, msg, ctxFields(ctx, owner))
}

func errNullOperation(ctx CallContext) error {
	return stderrors.New(stderrors.CodeNullOperation, "bulk-memory operation on a null pointer", ctxFields(ctx, nil))
}

func errFreeOperation(ctx CallContext, ptr uintptr) error {
	return stderrors.New(stderrors.CodeFreeOperation, fmt.Sprintf("bulk-memory operation on unallocated address 0x%x", ptr), ctxFields(ctx, nil))
}

func errFreedOperation(ctx CallContext, ptr uintptr, prior *Record) error {
	return stderrors.New(stderrors.CodeFreedOperation, fmt.Sprintf("bulk-memory operation on released address 0x%x", ptr), ctxFields(ctx, prior))
}

func errRangeOverflow(ctx CallContext, allowOverflow bool, a, aLen, b, bLen uintptr) error {
	msg := fmt.Sprintf("range [0x%x,+%d) overlaps guard bytes of range [0x%x,+%d)", a, aLen, b, bLen)
	sev := stderrorsDefaultOr(allowOverflow)

	return stderrors.NewWithSeverity(stderrors.CodeRangeOverflow, sev, msg, ctxFields(ctx, nil))
}

func errRangeOverlap(ctx CallContext, dst, src, n uintptr) error {
	msg := fmt.Sprintf("copy ranges [0x%x,+%d) and [0x%x,+%d) intersect", dst, n, src, n)
	return stderrors.New(stderrors.CodeRangeOverlap, msg, ctxFields(ctx, nil))
}

func errStringOverflow(ctx CallContext, base uintptr) error {
	return stderrors.New(stderrors.CodeStringOverflow, fmt.Sprintf("string at 0x%x is not terminated before the guard boundary", base), ctxFields(ctx, nil))
}

func errOutOfMemory(ctx CallContext, size uintptr) error {
	return stderrors.New(stderrors.CodeOutOfMemory, fmt.Sprintf("unable to satisfy allocation of %d bytes", size), ctxFields(ctx, nil))
}

func stderrorsDefaultOr(allowOverflow bool) stderrors.Severity {
	if allowOverflow {
		return stderrors.SeverityWarning
	}

	return stderrors.SeverityError
}

func ctxFields(ctx CallContext, owner *Record) map[string]interface{} {
	fields := map[string]interface{}{
		"function": ctx.Function,
		"file":     ctx.File,
		"line":     ctx.Line,
		"thread":   ctx.ThreadID,
	}

	if owner != nil {
		fields["allocOrdinal"] = owner.Ordinal
		fields["allocKind"] = owner.Kind.String()
		fields["allocFunction"] = owner.Context.Function
	}

	return fields
}
