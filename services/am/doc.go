// Package am implements the applet manager services an application uses
// to report and control its own status.
//
// The application reaches ISelfController through the "appletOE" port:
// OpenApplicationProxy moves an IApplicationProxy session to the caller,
// and GetSelfController on that proxy moves an ISelfController session.
//
// Most ISelfController commands are stubs. A stub acknowledges the call
// with Success and an empty body and changes no state; it does not decode
// its declared inputs.
package am
