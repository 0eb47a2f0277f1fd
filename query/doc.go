// Package query runs raw SQL and materializes the rows into a caller chosen
// shape.
//
// A Query couples the SQL text and its arguments with a Materializer. The
// default materializer turns each row into an ordered column map:
//
//	q := query.New("SELECT first_name, last_name FROM auth_user WHERE username = $1", "jdoe")
//
//	c, err := query.Open(ctx, registry, "default")
//	if err != nil {
//	    return err
//	}
//	defer c.Close()
//
//	uq, err := query.AsType[User](q)
//	if err != nil {
//	    return err
//	}
//	rows, err := query.Execute(ctx, c, uq)
//	if err != nil {
//	    return err
//	}
//	for u, err := range rows.All() {
//	    ...
//	}
//
// AsType keeps the row shape of the bound materializer: a dict query maps
// columns to fields by name, a plain query by position, and a flat query
// takes the first column. Typed and custom materializers are sealed.
//
// Results are lazy and single pass: rows are pulled from the server cursor
// and materialized one at a time, and a consumed result set cannot be
// iterated again.
package query
