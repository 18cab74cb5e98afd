/*
 * Copyright © 2025 Suparena Software Inc., All rights reserved.
 */

/*
Package query separates filter control metadata from predicates and evaluates
predicates against in-process documents.

A raw filter mixes the two:

	storagemodels.Filter{
		"state":  "NSW",
		"age":    map[string]any{"$gte": 18},
		"$sort":  "-age,+name",
		"$limit": "10",
	}

Parse splits it into Filters (the $select, $limit, $offset, $startCursor,
$endCursor and $sort values, with limit and offset coerced to integers) and a
Predicate holding everything else. Adapters that can push predicates to their
backend translate Predicate themselves; the in-process adapters use Match,
Sort, Page and Project.

Supported predicate operators:

	$in, $nin          list membership
	$gt, $gte, $lt, $lte, $ne
	$exists            field presence (bool)
	$like              SQL LIKE pattern with % and _
	$or                list of predicates, any of which must match
*/
package query
