// Package serial implements a CDC-ACM-style serial function driver for the
// usbd device core.
//
// The driver mounts a single interface with two alternate settings:
// setting 0 exposes only the interrupt notification endpoint, setting 1
// adds the bulk data pair. It handles the line coding and control line
// state class requests on EP0 and echoes bulk OUT data back on the bulk IN
// endpoint, exercising every callback of the [usbd.Class] capability set.
package serial
