/*
	Package dvid provides types, constants, and functions that have no other dependencies
	and can be used by all packages within reseg.  This includes voxel coordinates, logging,
	the error taxonomy, command string handling, and serialization of label data.  Since
	these elements are used at multiple layers, we separate them here.
*/
package dvid
