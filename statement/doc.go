// Package statement serializes code statements against a single remote session.
//
// The service accepts one in-flight statement per session. Executor enforces that with
// a FIFO of waiting callers: statements run strictly one at a time, in arrival order,
// and each caller receives the Output of its own statement.
//
//	exec := statement.NewExecutor(sess, logger)
//	out, err := exec.Run(ctx, "1+1")
//	var ferr *statement.FailureError
//	if errors.As(err, &ferr) {
//	    // the statement ran but raised; the session is still usable
//	}
//	fmt.Println(out.Text())
package statement
