// Package recordset converts database/sql result sets into JSON-ready rows.
//
// Rows keep their column order when serialised, and integers that JavaScript
// consumers cannot represent exactly (magnitude above 2^53-1) are rendered as
// decimal strings:
//
//	{"rows":[{"id":1,"total":"9223372036854775807","name":"pump"}]}
//
// DECIMAL and NUMERIC values that drivers deliver as text follow the same
// rule when integral; fractional ones keep their exact digits as JSON numbers.
package recordset
