// Command scenarr runs the acquisition daemon and its maintenance commands.
package main
