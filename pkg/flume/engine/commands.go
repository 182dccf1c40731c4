package engine

func builtinCommands() []*Command {
	return []*Command{
		{
			Kind: OpSelect, Name: "SELECT", Handler: opSelect,
			Input:    InputArgs,
			Syntax:   "SELECT (* | term [AS name]), ... [FROM table]",
			Summary:  "Builds a table with one column per term.",
			Examples: []string{"SELECT name, salary * 12 AS yearly FROM people", "SELECT *, upper(name)"},
		},
		{
			Kind: OpFilter, Name: "FILTER", Handler: opFilter,
			Syntax:   "FILTER term [FROM table]",
			Summary:  "Keeps the rows where a term is true.",
			Examples: []string{"FILTER age > 40 FROM people", "FILTER name LIKE '^b'"},
		},
		{
			Kind: OpSort, Name: "SORT", Handler: opSort,
			Syntax:   "SORT [table] [BY column [ASC|DESC], ...]",
			Summary:  "Sorts the rows of a table.",
			Examples: []string{"SORT people BY salary DESC", "SORT BY last, first"},
		},
		{
			Kind: OpTake, Name: "TAKE", Handler: opTake,
			Params:   []Param{{Name: "n", Kind: ParamInt}},
			Syntax:   "TAKE [LAST] n [FROM table]",
			Summary:  "Keeps the first or last n rows of a table.",
			Examples: []string{"TAKE 10", "TAKE LAST 2 FROM people"},
		},
		{
			Kind: OpJoin, Name: "JOIN", Handler: opJoin,
			Syntax:   "[INNER|LEFT|RIGHT|OUTER] JOIN [table] WITH table [ON column, ...]",
			Summary:  "Joins two tables on key columns.",
			Examples: []string{"JOIN people WITH orders ON id", "LEFT JOIN WITH (AS CSV \"id,x\\n1,a\")"},
		},
		{
			Kind: OpCross, Name: "CROSS", Handler: opCross,
			Syntax:   "CROSS [JOIN] [table] WITH table",
			Summary:  "Pairs every row of one table with every row of another.",
			Examples: []string{"CROSS JOIN sizes WITH colors"},
		},
		{
			Kind: OpUnion, Name: "UNION", Handler: opUnion,
			Syntax:   "UNION [table] WITH table, ...",
			Summary:  "Stacks tables with the same columns.",
			Examples: []string{"UNION january WITH february, march"},
		},
		{
			Kind: OpDistinct, Name: "DISTINCT", Handler: opDistinct,
			Syntax:   "DISTINCT [table] [BY (* | column, ...)] [KEEP FIRST|LAST]",
			Summary:  "Removes duplicate rows.",
			Examples: []string{"DISTINCT", "DISTINCT people BY email KEEP LAST"},
		},
		{
			Kind: OpDrop, Name: "DROP", Handler: opDrop,
			Syntax:   "DROP column, ... [FROM table]",
			Summary:  "Removes columns from a table.",
			Examples: []string{"DROP password, salt FROM users"},
		},
		{
			Kind: OpRename, Name: "RENAME", Handler: opRename,
			Syntax:   "RENAME column TO column [FROM table]",
			Summary:  "Renames a column.",
			Examples: []string{"RENAME :0 TO name", "RENAME `first name` TO first FROM people"},
		},
		{
			Kind: OpReverse, Name: "REVERSE", Handler: opReverse,
			Syntax:   "REVERSE [table]",
			Summary:  "Reverses the order of rows.",
			Examples: []string{"REVERSE people"},
		},
		{
			Kind: OpTranspose, Name: "TRANSPOSE", Handler: opTranspose,
			Syntax:   "TRANSPOSE [table] [BY column]",
			Summary:  "Turns rows into columns.",
			Examples: []string{"TRANSPOSE stats BY metric"},
		},
		{
			Kind: OpExplode, Name: "EXPLODE", Handler: opExplode,
			Syntax:   "EXPLODE column [FROM table]",
			Summary:  "Expands a list column into one row per element.",
			Examples: []string{"EXPLODE tags FROM posts"},
		},
		{
			Kind: OpCreate, Name: "CREATE", Handler: opCreate,
			Syntax:   "CREATE name AS format (string | << END ... END)",
			Summary:  "Declares a literal table.",
			Examples: []string{"CREATE ids AS CSV \"id\\n1\\n2\\n3\"", "CREATE people AS CSV << END"},
		},
		{
			Kind: OpPut, Name: "PUT", Handler: opPut,
			Syntax:   "PUT [table]",
			Summary:  "Returns a table, so it can be bound to another name.",
			Examples: []string{"PUT it INTO backup"},
		},
		{
			Kind: OpRead, Name: "READ", Handler: opRead,
			Params:     []Param{{Name: "location", Kind: ParamString}},
			Input:      InputArgs,
			Parallel:   true,
			Permission: PermRead,
			Syntax:     "READ location [FROM table] [AS format]",
			Summary:    "Loads a table from a file or URL.",
			Examples:   []string{"READ \"people.csv\"", "READ \"$_0\" FROM files AS JSON", "READ \"https://example.com/data.json\""},
		},
		{
			Kind: OpWrite, Name: "WRITE", Handler: opWrite,
			Params:     []Param{{Name: "location", Kind: ParamString, Optional: true}},
			Effect:     true,
			Permission: PermWrite,
			Syntax:     "WRITE [table] [TO location] [AS format]",
			Summary:    "Writes a table to a file, or to the console.",
			Examples:   []string{"WRITE people TO \"people.json\"", "WRITE AS MARKDOWN"},
		},
		{
			Kind: OpConnect, Name: "CONNECT", Handler: opConnect,
			Params:     []Param{{Name: "url", Kind: ParamString, Optional: true}},
			Input:      InputArgs,
			Effect:     true,
			Permission: PermConnect,
			Syntax:     "CONNECT source [TO url] [AS (SQL | AWK)]",
			Summary:    "Connects to a database or other data source.",
			Examples:   []string{"CONNECT db TO \"sqlite:orders.db\" AS SQL", "CONNECT logs TO \"access.log\" AS AWK"},
		},
		{
			Kind: OpQuery, Name: "QUERY", Handler: opQuery,
			Params:   []Param{{Name: "term"}},
			Input:    InputArgs,
			Parallel: true,
			Syntax:   "QUERY (term | *) FROM source[.table]",
			Summary:  "Queries a connected data source.",
			Examples: []string{"QUERY \"age > 40\" FROM work.employees", "QUERY * FROM db.orders"},
		},
		{
			Kind: OpRun, Name: "RUN", Handler: opRun,
			Params:     []Param{{Name: "location", Kind: ParamString}, {Name: "arg", Variadic: true}},
			Input:      InputArgs,
			Permission: PermRun,
			Syntax:     "RUN location [, arg, ...] [FROM table]",
			Summary:    "Runs another script and returns its final table.",
			Examples:   []string{"RUN \"clean.flume\"", "RUN \"report.flume\", region FROM regions"},
		},
		{
			Kind: OpShell, Name: "SH", Handler: opShell,
			Params:     []Param{{Name: "command", Kind: ParamString}},
			Input:      InputArgs,
			Parallel:   true,
			Permission: PermRun,
			Syntax:     "SH command [FROM table] [AS format]",
			Summary:    "Runs a shell command and reads its output as a table.",
			Examples:   []string{"SH \"ls -1\" AS CSV NO HEADER", "SH \"wc -l $_0\" FROM files AS TSV NO HEADER"},
		},
		{
			Kind: OpPrint, Name: "PRINT", Handler: opPrint,
			Input:    InputArgs,
			Effect:   true,
			Syntax:   "PRINT term, ... [FROM table]",
			Summary:  "Outputs values to the console, one row per line.",
			Examples: []string{"PRINT \"$last, $first\" FROM names", "PRINT count(*)"},
		},
		{
			Kind: OpHelp, Name: "HELP", Handler: opHelp,
			Input:    InputNone,
			Effect:   true,
			Syntax:   "HELP [command]",
			Summary:  "Lists the commands, or describes one.",
			Examples: []string{"HELP", "HELP JOIN"},
		},
		{
			Kind: OpQuit, Name: "QUIT", Handler: opQuit,
			Input:   InputNone,
			Effect:  true,
			Syntax:  "QUIT",
			Summary: "Ends the script or console session.",
		},
	}
}
