// Package git provides the git operations used by the mirror pipeline.
//
// Every operation shells out to the git executable through a
// command.Executor, so the package never interprets arguments with a shell
// and can be exercised in tests with a scripted executor.
//
// Key Components:
//
// Client: typed wrappers for mirror clone and push, rev-parse, remote and
// config management, and the credential-cache helper.
//
// Example Usage:
//
//	c := git.New(command.NewRunner(os.Stdout, os.Stderr))
//	if err := c.CloneMirror(ctx, "https://github.com/org/repo.git", dir); err != nil {
//	    return err
//	}
//	head, err := c.RevParse(ctx, dir, "HEAD")
//
// Error Handling:
//
// Operations return an errors.OperationError naming the git operation and
// wrapping the command.Failure, which carries the exit code and stderr.
//
// Thread Safety:
//
// A Client holds no mutable state. Concurrent operations against the same
// repository directory are not coordinated and should be avoided.
package git
