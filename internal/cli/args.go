package cli

import "strings"

// SplitCommand skips the leading global flags (and their values) in args and
// returns the command words with their own flags.
//
//	-d dsn -k key payments check -user u -id p  ->  payments check -user u -id p
func SplitCommand(args []string) []string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if !strings.HasPrefix(arg, "-") {
			return args[i:]
		}
		if strings.Contains(arg, "=") {
			continue
		}
		if i+1 < len(args) && !strings.HasPrefix(args[i+1], "-") {
			i++
		}
	}
	return nil
}
