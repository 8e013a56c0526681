// Package mocks provides shared mock implementations for testing.
//
// # Usage
//
//	import "resilientagent/internal/mocks"
//
//	func TestSomething(t *testing.T) {
//	    primary := mocks.NewMockBackend("primary-model")
//	    primary.Script(
//	        mocks.Fail(llmerrors.CodeThrottling),
//	        mocks.Respond("hello"),
//	    )
//	    // Use primary as an llm.Backend...
//	}
//
// # Available Mocks
//
//   - MockBackend: scripted llm.Backend that records every call
package mocks
